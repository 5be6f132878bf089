package main

import "AlertDesk/cmd/alertdesk/cmd"

func main() {
	cmd.Execute()
}
