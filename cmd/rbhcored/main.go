// Command rbhcored runs the policy-driven filesystem management engine:
// a one-shot policy run, or a resident daemon driving a trigger loop
// and an admin HTTP surface.
package main

import "github.com/cea-hpc/robinhood-sub006/cmd/rbhcored/cmd"

func main() {
	cmd.Execute()
}
