package aggregate

import "strings"

// OKStatus is the history entry written for a passing check execution.
const OKStatus = "0"

// ExecutionKey names the last-execution timestamp of check on node.
func ExecutionKey(node, check string) string {
	return "execution:" + node + ":" + check
}

// ExecutionPattern matches the execution keys of every node for check.
func ExecutionPattern(check string) string {
	return "execution:*:" + check
}

// HistoryKey names the status sequence of check on node.
func HistoryKey(node, check string) string {
	return "history:" + node + ":" + check
}

// SilenceKeys lists the node-wide, check-wide and node+check silence keys.
func SilenceKeys(node, check string) []string {
	return []string{
		"stash:silence/" + node,
		"stash:silence/" + check,
		"stash:silence/" + node + "/" + check,
	}
}

// nodeFromExecutionKey extracts the node identity from an execution key.
func nodeFromExecutionKey(key string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 3 || parts[0] != "execution" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
