// Package signing submits the built archive to the remote signing service,
// polls until the service reports a signed file and replaces the local
// archive with the signed one.
//
// Every request carries a freshly minted short-lived JWT. A conflict on
// submission means this id and version were signed before and ends the flow
// without polling. Missing credentials or SIGN=false skip signing entirely.
package signing
