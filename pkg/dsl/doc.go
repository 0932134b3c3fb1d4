/*
Package dsl provides a Go DSL for declaring fetpipe pipelines as dataflow graphs.

Nodes wrap stages; edges bind a named output of one node to a named input of another.
Two pseudo-nodes frame every pipeline: InputNode exposes the pipeline inputs and
OutputNode collects the pipeline outputs. Every edge is checked against the ports the
stages declare when Build is called, so a miswired pipeline never reaches run time.

Example usage:

	b := dsl.New("niftymic")
	b.Input("stacks").Output("recon_files")

	b.Add("brain_extraction", &stages.BrainExtraction{Container: c})
	b.Map("denoising", &stages.Denoise{}, "input_image")
	b.Add("recon", &stages.Reconstruction{Container: c})

	b.Connect(dsl.InputNode, "stacks", "brain_extraction", "raw_T2s").
		Connect(dsl.InputNode, "stacks", "denoising", "input_image").
		Connect("denoising", "output_image", "recon", "stacks").
		Connect("brain_extraction", "bmasks", "recon", "masks").
		Connect("recon", "recon_files", dsl.OutputNode, "recon_files")

	graph, err := b.Build()
*/
package dsl
