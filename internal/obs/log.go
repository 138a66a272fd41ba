package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	initLogger sync.Once
	jsonLogger *log.Logger
)

// Logger returns the process-wide line logger. Request logging and the audit
// trail both write through it, so the service emits a single JSON stream on
// stdout.
func Logger() *log.Logger {
	initLogger.Do(func() {
		jsonLogger = log.New(os.Stdout, "", 0)
	})
	return jsonLogger
}

// LogRequest marshals entry as one JSON object per line. Keys are whatever the
// caller provides; the request middleware supplies ts/level/msg and the HTTP
// fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
