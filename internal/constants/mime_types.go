package constants

// ExtensionByMimeType maps attachment MIME types to the file extension used
// when persisting downloaded media. Unknown types get no extension.
var ExtensionByMimeType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",

	"application/pdf":               ".pdf",
	"application/msword":            ".doc",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"text/plain": ".txt",

	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"video/mp4":  ".mp4",
}

// ExtensionForMimeType looks up the storage extension for a MIME type,
// ignoring any parameters (e.g. "; charset=utf-8").
func ExtensionForMimeType(mimeType string) string {
	for i := 0; i < len(mimeType); i++ {
		if mimeType[i] == ';' {
			mimeType = mimeType[:i]
			break
		}
	}
	return ExtensionByMimeType[mimeType]
}
