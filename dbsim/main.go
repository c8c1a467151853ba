// Command dbsim runs a simulated controller that serves datablocks.
package main

import "github.com/sarchlab/dbsim/dbsim/cmd"

func main() {
	cmd.Execute()
}
