// Lasku - billing-first cloud cost and inventory reconciliation.
// The ledger decides what exists; inventory only adds detail.
package main

func main() {
	Execute()
}
