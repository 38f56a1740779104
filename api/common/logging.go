package common

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var logJSON = jsoniter.Config{EscapeHTML: false, SortMapKeys: true}.Froze()

// HumanTimestampFormat is ISO-8601 with millisecond precision in UTC.
const HumanTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// SetLogFormat installs the formatter for the process-wide logger. "json"
// selects one JSON object per line, anything else the single line human format.
func SetLogFormat(format string) {
	logrus.SetFormatter(NewFormatter(format))
}

// NewFormatter returns the logrus formatter for the given LOG_FORMAT value.
func NewFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	return &HumanFormatter{}
}

// JSONFormatter writes one object per entry with the keys time, level and msg
// next to the entry's fields. Unlike logrus.JSONFormatter the level is written
// as LevelName, matching the human format.
type JSONFormatter struct {
	TimestampFormat string
}

func (f *JSONFormatter) Format(e *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(e.Data)+3)
	for k, v := range e.Data {
		switch k {
		case "time", "level", "msg":
			k = "fields." + k
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	data["time"] = e.Time.UTC().Format(f.TimestampFormat)
	data["level"] = LevelName(e.Level)
	data["msg"] = e.Message

	b := e.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}
	out, err := logJSON.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields to JSON: %w", err)
	}
	b.Write(out)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func SetLogLevel(ll string) {
	if ll == "" {
		ll = "info"
	}

	logLevel, err := logrus.ParseLevel(ll)
	if err != nil {
		logrus.WithFields(logrus.Fields{"level": ll}).Warn("Could not parse log level, setting to INFO")
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)

	// gin's debug mode prints straight to stdout, bypassing the formatter
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultErrorWriter = logrus.StandardLogger().WriterLevel(logrus.ErrorLevel)
}

// LevelName is the upper case name a level is logged with: DEBUG, INFO, WARN,
// ERROR, CRITICAL.
func LevelName(l logrus.Level) string {
	switch l {
	case logrus.WarnLevel:
		return "WARN"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "CRITICAL"
	}
	return strings.ToUpper(l.String())
}

// HumanFormatter renders `[<timestamp>] <LEVEL>: <msg>` with any fields
// appended as key=value pairs in key order.
type HumanFormatter struct{}

func (f *HumanFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b := e.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "[%s] %s: %s", e.Time.UTC().Format(HumanTimestampFormat), LevelName(e.Level), e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fieldValue(e.Data[k]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func fieldValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		if strings.ContainsAny(v, " \t\r\n\"=") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case error:
		return fmt.Sprintf("%q", v.Error())
	case fmt.Stringer:
		return v.String()
	case int, int64, int32, uint, uint64, uint32, float64, float32, bool:
		return fmt.Sprint(v)
	}
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return out
}
