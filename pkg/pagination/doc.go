// Package pagination drains paginated endpoints into a single slice.
//
// Two styles are supported. Offset draining sends a numeric start-at
// parameter equal to the number of items collected so far and stops at the
// first empty page. Cursor draining follows the continuation token a page
// returns and stops when a page carries none.
//
// Example usage:
//
//	drainer := pagination.NewDrainer(apiClient, pagination.DefaultConfig())
//	users, err := pagination.FetchAllWithStartAt(ctx, drainer, coords, "startAt", nil,
//		func() pagination.NumberedPage[User] { return &UserPage{} })
//
// Pages are requested strictly one after another through the client, so
// every page consumes one rate-limit admission. A page answered with a
// non-success status is logged and retried at the same position with
// backoff, up to Config.MaxFailedPages consecutive failures. When the very
// first page fails there is nothing to continue from and the drain ends
// with an empty result.
package pagination
