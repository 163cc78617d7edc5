package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Output is one JSON object per
// line on stdout, ready for the log collector without further shaping.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one event as a JSON line. Keys are free-form; request
// middleware and the report workflow use ts/level/msg plus their own fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","service":"siteops-api","msg":"log entry not serializable"}`)
		return
	}
	Logger().Println(string(data))
}
