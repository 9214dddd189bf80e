// Package restclient implements relational.Client for PostgREST style HTTP APIs
// as exposed by hosted relational services. Every request targets
//
//	<endpoint>/rest/v1/<table>
//
// and carries the credential both as "apikey" header and as bearer token.
//
// Upserts are POST requests with on_conflict=id and "Prefer: resolution=merge-duplicates";
// rows are grouped by column set because the API requires all objects of a bulk
// request to share their keys. Updates and deletes filter by id=eq.<id> and ask for
// the affected rows to report whether anything matched.
//
// The error codes 42P01 (undefined table) and PGRST205 (table missing from the
// schema cache) become relational.ErrTableNotFound; every other failure is a
// *relational.Error with status, code and message. Responses are decoded with
// json.Number, so numbers keep their integral form.
package restclient
