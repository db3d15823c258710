// Package simplemedia ingests images into a blob store, records them in a
// document store and keeps the reusable image archive, positioned collections
// (advertisements, slides) and screen carousels built on top of them.
//
// The Service is the single entry point:
//
//	svc, err := simplemedia.New(
//		simplemedia.WithDocumentStore(docs),
//		simplemedia.WithBlobStore(blobs),
//		simplemedia.WithCodec(imagecodec.New()),
//	)
//
//	res, err := svc.IngestAndArchive(ctx, simplemedia.IngestRequest{
//		Data:        data,
//		FileName:    "beach.jpg",
//		Destination: "media",
//		Policy:      simplemedia.UploadPolicy{MaxSizeMB: 10, AllowedMimePrefixes: []string{"image/"}},
//	})
//
// Ingest runs validate, convert, upload and record strictly in sequence. A
// blob whose metadata could not be written is reported to the EventSink as a
// reconciliation candidate and the call fails.
//
// Every operation takes a context. Cancelling it stops the caller from
// waiting, but a request already accepted by a backend may still complete.
//
// Backends live in sub-packages: storage/{memory,fs,s3,minio} for blobs and
// docstore/{memory,mongo,postgres} for documents. The config package wires
// them from environment variables.
package simplemedia
