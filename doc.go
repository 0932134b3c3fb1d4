/*
Package fetpipe orchestrates fetal brain MRI reconstruction and segmentation pipelines.

Each stage wraps an external neuroimaging tool (NiftyMIC, NeSVoR, ANTs, the dHCP structural
pipeline) that is launched directly or inside a Docker or Singularity container. The tools
are unreliable: they crash, run out of memory or exit cleanly without writing anything. A
stage therefore only succeeds once every artifact it declares exists on disk, re-launching
the tool up to a bounded number of times.

# Concept

A pipeline is a directed acyclic graph of stages. Each stage runs in its own staging root,
a directory laid out the way its tool expects, so that a re-run finds the artifacts of a
previous attempt and skips the tool. The engine runs independent stages concurrently,
fans mapped stages out over lists of stacks and records the outcome of every node in a
run store.

# Usage

	params, err := config.Load("params.yaml")
	if err != nil {
		log.Fatal(err)
	}

	eng, err := fetpipe.New(params)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	res, err := eng.Run(ctx, pipelines.NameNiftyMICDHCP, domain.Inputs{
		domain.PortStacks:             []string{"sub-01_run-1_T2w.nii.gz", "sub-01_run-2_T2w.nii.gz"},
		pipelines.InputGestationalAge: 31.0,
	}, "")
*/
package fetpipe
