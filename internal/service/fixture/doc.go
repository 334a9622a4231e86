// Package fixture resolves fixture archive descriptors to downloadable or
// buildable artifacts and keeps the fixture install directory in sync with
// the configured list.
package fixture
