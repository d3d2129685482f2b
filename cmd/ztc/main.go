package main

import "github.com/kidoz/zabbix-vuln-matrix/cmd"

func main() {
	cmd.Execute()
}
