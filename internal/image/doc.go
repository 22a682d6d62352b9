// Package image turns image files on disk into outbound broker messages.
//
// It holds the three leaf stages of the publish pipeline:
//   - Scan: list the image files of a directory (non-recursive)
//   - Encoder: read a file and encode it as standard base64 text
//   - Assemble: derive the topic, message ID and properties for a file
//
// Everything here is synchronous and free of broker concerns; the
// publisher package drives these stages one file at a time.
//
// # Wire shape
//
//	topic:      solace/images/cat.PNG
//	message ID: image-cat.PNG
//	properties: filename=cat.PNG content-type=image/png encoding=base64
//	body:       iVBORw0KGgo...
//
// Consumers rebuild the binary by base64-decoding the body and use the
// content-type property for the file type.
package image
