// faketool stands in for a containerized imaging tool in tests.
// It counts its invocations in a file and only writes its outputs from the N-th call on,
// exiting non-zero before that (and optionally after, to prove exit codes are ignored).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func main() {
	counter := flag.String("counter", "", "file holding the invocation count")
	succeedOn := flag.Int("succeed-on", 1, "invocation that produces the outputs")
	create := flag.String("create", "", "comma separated outputs to write")
	exitCode := flag.Int("exit", 0, "exit code once outputs are written")
	flag.Parse()

	n := 1
	if data, err := os.ReadFile(*counter); err == nil {
		prev, _ := strconv.Atoi(strings.TrimSpace(string(data)))
		n = prev + 1
	}
	if err := os.WriteFile(*counter, []byte(strconv.Itoa(n)), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "counter:", err)
		os.Exit(2)
	}

	if n < *succeedOn {
		fmt.Fprintf(os.Stderr, "attempt %d: not yet\n", n)
		os.Exit(1)
	}

	for _, p := range strings.Split(*create, ",") {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			os.Exit(2)
		}
		if err := os.WriteFile(p, []byte("nii"), 0o644); err != nil {
			os.Exit(2)
		}
	}
	fmt.Printf("attempt %d: wrote outputs\n", n)
	os.Exit(*exitCode)
}
