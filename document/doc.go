// Package document maps typed documents onto records of a schema-less
// key-value store, adding unique constraints and back-reference
// collections the store does not provide.
//
// # Defining types
//
// Types are defined once at startup against a Registry:
//
//	reg := document.NewRegistry(s, document.DefaultConfig(), logger)
//	users := reg.MustDefine("users", []document.Property{
//	    document.Unique("email", document.ValueString),
//	    document.Scalar("name", document.ValueString),
//	})
//	posts := reg.MustDefine("posts", []document.Property{
//	    document.Scalar("title", document.ValueString),
//	    document.Reference("author", "users", "posts"),
//	})
//
// The "posts" collection is synthesized on users and lists every post whose
// author is that user.
//
// # Lifecycle
//
//	alice, err := users.New(ctx, document.Fields{"email": "alice@example.com"})
//	err = alice.Save(ctx)
//	post, err := posts.New(ctx, document.Fields{"title": "hi", "author": alice})
//	err = post.Save(ctx) // also saves alice with post in alice.Collection("posts")
//
// Load returns the same instance for a key while it is alive. Delete drops
// the document from every collection that lists it.
//
// # Consistency
//
// Save and Delete issue several independent writes. Unique values are
// reserved before the primary record is written; with a store that
// implements store.ConditionalPutter the reservation is atomic, otherwise
// two concurrent savers of the same new value can both win. Documents
// saved as a consequence of another save (cascade) do not share its
// failure scope and are reported through *CascadeError.
//
// # Errors
//
//   - [ErrSchema] - invalid type definition
//   - [ErrUnknownType] - no type registered for a bucket
//   - [ErrKey] - invalid or already-live key
//   - [ErrField] - invalid field assignment
//   - [ErrUniqueConstraint] - unique value owned by another document
//   - [ErrNotFound] - missing document, or reload of an unsaved one
//   - [ErrCascade] - a cascading save failed
package document
