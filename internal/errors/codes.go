package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig     ErrorCode = "invalid_configuration"
	ErrReadConfig        ErrorCode = "read_config_failed"
	ErrBindFlags         ErrorCode = "bind_flags_failed"
	ErrInvalidDelay      ErrorCode = "invalid_delay"
	ErrInvalidRecordFile ErrorCode = "invalid_record_file"
	ErrInvalidSensor     ErrorCode = "invalid_sensor"
	ErrInvalidLogLevel   ErrorCode = "invalid_log_level"

	// Sensor errors
	ErrSensorInit ErrorCode = "sensor_init_failed"
	ErrSensorRead ErrorCode = "sensor_read_failed"

	// Record store errors
	ErrRecordRotate ErrorCode = "record_rotate_failed"
	ErrRecordCreate ErrorCode = "record_create_failed"
	ErrRecordWrite  ErrorCode = "record_write_failed"
	ErrRecordRead   ErrorCode = "record_read_failed"

	// Consumer errors
	ErrReportWrite     ErrorCode = "report_write_failed"
	ErrTelemetryOpen   ErrorCode = "telemetry_open_failed"
	ErrTelemetryMirror ErrorCode = "telemetry_mirror_failed"
	ErrPublishConnect  ErrorCode = "publish_connect_failed"
	ErrPublish         ErrorCode = "publish_failed"

	// Process errors
	ErrAlreadyRunning ErrorCode = "already_running"
	ErrPollLoop       ErrorCode = "poll_loop_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrInvalidConfig:     "Invalid configuration",
	ErrReadConfig:        "Failed to read config file",
	ErrBindFlags:         "Failed to bind flags",
	ErrInvalidDelay:      "Poll delay must be greater than zero",
	ErrInvalidRecordFile: "Record file must have a .csv extension",
	ErrInvalidSensor:     "Unknown sensor type",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrSensorInit:        "Failed to initialize sensor",
	ErrSensorRead:        "Failed to read sensor",
	ErrRecordRotate:      "Failed to rotate record file",
	ErrRecordCreate:      "Failed to create record file",
	ErrRecordWrite:       "Failed to append record",
	ErrRecordRead:        "Failed to read record file",
	ErrReportWrite:       "Failed to write report",
	ErrTelemetryOpen:     "Failed to open telemetry database",
	ErrTelemetryMirror:   "Failed to mirror records",
	ErrPublishConnect:    "Failed to connect to MQTT broker",
	ErrPublish:           "Failed to publish record",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrPollLoop:          "Error in poll loop",
	ErrShutdownFailed:    "Shutdown failed",
}

// configCodes are fatal at startup, before any loop runs.
var configCodes = map[ErrorCode]bool{
	ErrInvalidConfig:     true,
	ErrReadConfig:        true,
	ErrBindFlags:         true,
	ErrInvalidDelay:      true,
	ErrInvalidRecordFile: true,
	ErrInvalidSensor:     true,
	ErrInvalidLogLevel:   true,
}

// ioCodes are durable-storage failures; fatal to the poll loop.
var ioCodes = map[ErrorCode]bool{
	ErrRecordRotate: true,
	ErrRecordCreate: true,
	ErrRecordWrite:  true,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
