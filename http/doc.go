// Package http exposes the attachment service over a JSON API.
//
// # Routes
//
//	GET    /records/{class}                         list records of a class
//	GET    /records/{class}/{id}                    record attributes and attachments
//	DELETE /records/{class}/{id}                    remove the record and its files
//	GET    /records/{class}/{id}/{slot}             describe one attachment
//	PUT    /records/{class}/{id}/{slot}             attach a file (raw body or multipart "file")
//	DELETE /records/{class}/{id}/{slot}             detach and delete the stored files
//	GET    /records/{class}/{id}/{slot}/url         signed URL (?style=, ?expires=seconds)
//	GET    /records/{class}/{id}/{slot}/styles/{s}  stream one style
//	GET    /files/*                                 serve filesystem blobs, when enabled
//
// A raw PUT names the file with the filename query parameter or a
// Content-Disposition header.
//
// # Authentication
//
// Read and write routes are guarded by AWS Signature V4 presigned requests.
// Pass a RequestVerifier per group, or nil for public access:
//
//	store, _ := keybackend.NewSecretStore(cfg.Auth.Keys)
//	verifier := affix.NewSignatureVerifier("us-east-1", "s3", store.Find)
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    ReadVerifier:  nil,      // public reads
//	    WriteVerifier: verifier, // signed writes
//	    Files:         fsStore,
//	    FilesVerifier: verifier, // signed file URLs
//	}, service)
//	http.ListenAndServe(":5708", handler.Router())
//
// Errors are JSON bodies of the form {"error": code, "message": text}.
package http
