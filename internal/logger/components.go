package logger

// Component loggers prefix every line with the subsystem that produced it.

func LLMDebug(format string, v ...interface{}) { component(debugLevel, "[LLM] ", format, v...) }
func LLMInfo(format string, v ...interface{})  { component(infoLevel, "[LLM] ", format, v...) }
func LLMWarn(format string, v ...interface{})  { component(warnLevel, "[LLM] ", format, v...) }
func LLMError(format string, v ...interface{}) { component(errorLevel, "[LLM] ", format, v...) }

func ToolDebug(format string, v ...interface{}) { component(debugLevel, "[TOOL] ", format, v...) }
func ToolInfo(format string, v ...interface{})  { component(infoLevel, "[TOOL] ", format, v...) }
func ToolWarn(format string, v ...interface{})  { component(warnLevel, "[TOOL] ", format, v...) }
func ToolError(format string, v ...interface{}) { component(errorLevel, "[TOOL] ", format, v...) }

func StoreDebug(format string, v ...interface{}) { component(debugLevel, "[STORE] ", format, v...) }
func StoreInfo(format string, v ...interface{})  { component(infoLevel, "[STORE] ", format, v...) }
func StoreWarn(format string, v ...interface{})  { component(warnLevel, "[STORE] ", format, v...) }
func StoreError(format string, v ...interface{}) { component(errorLevel, "[STORE] ", format, v...) }

func IngestDebug(format string, v ...interface{}) { component(debugLevel, "[INGEST] ", format, v...) }
func IngestInfo(format string, v ...interface{})  { component(infoLevel, "[INGEST] ", format, v...) }
func IngestWarn(format string, v ...interface{})  { component(warnLevel, "[INGEST] ", format, v...) }
func IngestError(format string, v ...interface{}) { component(errorLevel, "[INGEST] ", format, v...) }

func TelegramDebug(format string, v ...interface{}) { component(debugLevel, "[TG] ", format, v...) }
func TelegramInfo(format string, v ...interface{})  { component(infoLevel, "[TG] ", format, v...) }
func TelegramWarn(format string, v ...interface{})  { component(warnLevel, "[TG] ", format, v...) }
func TelegramError(format string, v ...interface{}) { component(errorLevel, "[TG] ", format, v...) }

type level int

const (
	debugLevel level = iota
	infoLevel
	warnLevel
	errorLevel
)

func component(lvl level, prefix, format string, v ...interface{}) {
	format = prefix + format
	switch lvl {
	case debugLevel:
		if IsDebugEnabled() {
			output(4, &debugLogger, format, v...)
		}
	case infoLevel:
		output(4, &infoLogger, format, v...)
	case warnLevel:
		output(4, &warnLogger, format, v...)
	default:
		output(4, &errorLogger, format, v...)
	}
}
