// Package downloader streams a fetch session into an output sink.
//
// A [Sink] is a writer that is either committed or aborted once the session
// ends. Three sinks are provided: [FileSink] writes through a ".partial" file
// and renames it into place, [WriterSink] wraps an arbitrary writer such as
// stdout, and [BucketSink] uploads to a gocloud bucket.
//
// # Usage
//
//	sink, err := downloader.FileSink("out.bin", false)
//	if err != nil {
//	    return err
//	}
//	res, err := downloader.Download(ctx, d, url, sink, downloader.Options{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Digest)
//
// # Unordered Downloads
//
// With Options.Unordered each part is written at its offset as soon as it
// arrives, so one slow part does not stall the rest. This needs a
// [RandomAccessSink] such as [FileSink]; the digest is computed by reading
// the finished output back.
//
// # Checksums
//
// Unless disabled, the bytes are hashed with BLAKE3 while they are written.
// Setting ExpectDigest makes a mismatch abort the sink instead of committing it.
package downloader
