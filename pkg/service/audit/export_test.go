package audit

var (
	ObjectName = objectName
	NewLine    = newLine
)
