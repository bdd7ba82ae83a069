package util

var GLOBAL_LOG_LEVEL = LogLevelInfo
var GLOBAL_LOG_CATEGORIES = LogVoxel | LogMesh | LogSched | LogStore | LogWorld | LogOpenGL | LogIO

type LogLevel int

const (
	LogLevelError LogLevel = 1 << iota
	LogLevelWarning
	LogLevelDebug
	LogLevelInfo
)

type LogCategory int

const (
	LogVoxel LogCategory = 1 << iota
	LogMesh
	LogSched
	LogStore
	LogWorld
	LogOpenGL
	LogIO
)

func log(cat LogCategory, lvl LogLevel, txt string) {
	if lvl > GLOBAL_LOG_LEVEL {
		return
	}
	if GLOBAL_LOG_CATEGORIES&cat == 0 {
		return
	}
	println(txt)
}

func LogVoxelInfo(txt string) {
	log(LogVoxel, LogLevelInfo, txt)
}

func LogVoxelDebug(txt string) {
	log(LogVoxel, LogLevelDebug, txt)
}

func LogVoxelError(txt string) {
	log(LogVoxel, LogLevelError, txt)
}

func LogMeshInfo(txt string) {
	log(LogMesh, LogLevelInfo, txt)
}

func LogMeshDebug(txt string) {
	log(LogMesh, LogLevelDebug, txt)
}

func LogSchedInfo(txt string) {
	log(LogSched, LogLevelInfo, txt)
}

func LogSchedDebug(txt string) {
	log(LogSched, LogLevelDebug, txt)
}

func LogSchedError(txt string) {
	log(LogSched, LogLevelError, txt)
}

func LogStoreInfo(txt string) {
	log(LogStore, LogLevelInfo, txt)
}

func LogStoreError(txt string) {
	log(LogStore, LogLevelError, txt)
}

func LogWorldInfo(txt string) {
	log(LogWorld, LogLevelInfo, txt)
}

func LogWorldDebug(txt string) {
	log(LogWorld, LogLevelDebug, txt)
}

func LogWorldError(txt string) {
	log(LogWorld, LogLevelError, txt)
}

func LogIOInfo(txt string) {
	log(LogIO, LogLevelInfo, txt)
}

func LogIOError(txt string) {
	log(LogIO, LogLevelError, txt)
}

func LogGlInfo(txt string) {
	log(LogOpenGL, LogLevelInfo, txt)
}

func LogGlDebug(txt string) {
	log(LogOpenGL, LogLevelDebug, txt)
}

func LogGlError(txt string) {
	log(LogOpenGL, LogLevelError, txt)
}

func LogGlWarning(txt string) {
	log(LogOpenGL, LogLevelWarning, txt)
}
