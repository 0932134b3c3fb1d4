// Package schema validates stage inputs before a stage is allowed to run.
//
// A Schema maps input port names to types. Besides the scalar types (string, int,
// float, bool) and slices, it knows about filesystem values: File and Dir check that
// the path exists, so a missing upstream artifact is reported as a precondition
// failure instead of surfacing later as a tool crash.
//
//	in := schema.Schema{
//	    "T2":              schema.File(),
//	    "mask":            schema.File(),
//	    "gestational_age": schema.Float(),
//	    "threads":         schema.Optional(schema.Int()),
//	}
//
//	if err := schema.Validate(in, inputs); err != nil {
//	    // errors.Is(err, domain.ErrStaging) when a path is missing
//	}
package schema
