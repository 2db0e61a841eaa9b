// Package fetch downloads a single blob as an ordered byte stream by issuing
// concurrent byte-range requests against a pluggable [Backend].
//
// The blob is split into parts by [Plan]. Parts are fetched in parallel, up to
// [Config.Concurrency] at a time, each retried independently on transient
// failures. Completed parts are reassembled in offset order before being handed
// to the caller, so the caller always sees the bytes exactly as they appear in
// the blob.
//
// # Usage
//
//	d, err := fetch.New(backend, fetch.Config{
//	    PartSize:    8 * 1024 * 1024,
//	    Concurrency: 16,
//	})
//	if err != nil {
//	    return err
//	}
//
//	s, err := d.Download(ctx, "s3-object-key", fetch.Full())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	_, err = io.Copy(dst, s)
//
// # Spans
//
// A [Span] names the region to download before the blob size is known:
//   - [Full]: the whole blob (requires a size probe)
//   - [From]: from an offset to the end (requires a size probe)
//   - [To]: from the start up to an exclusive end
//   - [Between]: a half-open [start, end) range
//   - [Inclusive]: a closed [first, last] range
//   - [Last]: the final n bytes (requires a size probe)
//
// # Unordered Consumption
//
// [Session.NextUnordered] and [Session.WriteToAt] hand out parts as soon as
// they finish instead of in offset order. Each part frees its share of the
// buffer budget when it is handed out, so a slow early part does not hold up
// later ones. Use it when the destination supports random access writes.
//
// # Backpressure
//
// Fetched but unconsumed bytes are bounded by [Config.MaxBufferedBytes]. When
// the consumer is slower than the backend, new parts are not admitted until
// earlier parts have been read.
//
// # Errors
//
// A download either yields the complete span or ends with a single [*Error]
// describing the first fatal failure. Use [KindOf] or errors.Is with the
// sentinel errors ([ErrNotFound], [ErrTimeout], ...) to classify it.
//
// # Session States
//
//	Created -> SizeProbing -> Planning -> Fetching -> Draining -> Completed
//	                                 \           \           \-> Failed | Cancelled
//
// SizeProbing is skipped when the span does not need the blob size.
package fetch
