package credentials

var (
	SplitKey     = splitKey
	ExtractField = extractField
)
