// Command subrun runs child processes with redirected standard streams and
// keeps a local history of their outcomes.
package main

import "github.com/jrepp/prism-subprocess/cmd/subrun/cmd"

func main() {
	cmd.Execute()
}
