// Package signup implements waitlist registration.
//
// The Service validates a request, reserves the normalized email in the
// store, mirrors the signup to the mailing-list provider on a best-effort
// basis, and commits the record with the sync outcome. Email uniqueness is
// enforced by the store at the write itself; the service never checks for
// an existing email before inserting.
//
// The service layer depends on the Repository interface defined in
// repository.go and on membersync.Syncer. It never imports net/http or
// database/sql directly.
package signup
