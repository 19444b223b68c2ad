package settings

import "fmt"

const CmdName = "xspy"

var (
	// TracePattern names the temporary capture files.
	TracePattern = fmt.Sprintf("%s-*.json.zst", CmdName)
	// TraceOutput is the default trace destination.
	TraceOutput = "trace.json.gz"
)
