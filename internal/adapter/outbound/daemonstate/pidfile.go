package daemonstate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WritePIDFile records the current process's PID at path, 0644, so an
// operator or a "start"/"stop" invocation in another process can find it.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// ReadPIDFile reads a PID previously written by WritePIDFile. It returns
// 0 if the file is missing or unparsable.
func ReadPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
