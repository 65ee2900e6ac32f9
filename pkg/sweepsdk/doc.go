// Package sweepsdk is a client for the grantsweep ops API. It also defines the
// wire types the server writes, so both sides share one definition.
//
//	c := sweepsdk.NewClient("http://grantsweep:8080")
//	report, err := c.RunCleanup(ctx)
//	if errors.Is(err, sweepsdk.ErrCleanupRunning) {
//		// a scheduled pass is already in flight
//	}
package sweepsdk
