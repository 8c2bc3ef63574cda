// Package affix attaches files to records.
//
// An attachment is a named file slot on a host record. Assigning a file
// records its name, content type, size and update time on the record, runs
// the processor pipeline to derive every configured style, and stages the
// results in memory. Commit then applies the staged changes to the storage
// backend in a fixed order: moves of files whose keys changed, writes of new
// files, and deletes of files that are no longer referenced.
//
// # Key Components
//
//   - Attachment: the per-slot state machine with staged writes and deletes
//   - Interpolator: renders storage keys and URLs from templates such as
//     ":attachment/:id/:style/:filename"
//   - Backend: blob storage contract, implemented by the filesystem and
//     objectstore packages
//   - Pipeline: runs named transforms per style, see the processor package
//   - AttachmentService: load record, assign or clear, save, commit
//   - SignatureVerifier: AWS Signature V4 presigned URL verification
//
// # Example Usage
//
//	reg := affix.NewRegistry()
//	reg.RegisterBackend("filesystem", filesystem.Factory(store))
//	processor.Register(reg)
//
//	rec := affix.NewRecord("user", "42")
//	avatar, err := affix.NewAttachment("avatar", rec, affix.Options{
//	    Backend: "filesystem",
//	    Styles:  map[string]affix.StyleOptions{"thumb": {Geometry: "100x100#"}},
//	}, reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := affix.OpenFile("me.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := avatar.Assign(ctx, f); err != nil {
//	    log.Fatal(err)
//	}
//	if err := avatar.Commit(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	avatar.URL("thumb") // "/system/avatars/42/thumb/me.png"
package affix
