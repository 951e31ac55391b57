// Package device provides the device registry for HomeState Core.
//
// A device is a simulated ESP8266 board owned by a user. The registry keeps
// the catalogue of devices, answers existence checks for the state
// transports, and records when a device was last seen.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                     Device Registry                       │
//	│                                                           │
//	│  ┌────────────────┐   ┌────────────────┐  ┌────────────┐ │
//	│  │    Registry    │──▶│   Repository   │  │ Validation │ │
//	│  │ (registry.go)  │   │(repository.go) │  │            │ │
//	│  │ • cache        │   │ • devices      │  │ • names    │ │
//	│  │ • Exists       │   │ • state seed   │  │ • ids      │ │
//	│  │ • MarkSeen     │   │                │  │            │ │
//	│  └────────────────┘   └────────────────┘  └────────────┘ │
//	└──────────────────────────────────────────────────────────┘
//
// Creating a device also creates its all-false state record in the same
// transaction, so every registered device can be read and streamed
// immediately. Deleting a device cascades to its state and history.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev := &device.Device{Name: "Hallway board", UserID: "user-1"}
//	if err := registry.CreateDevice(ctx, dev); err != nil {
//	    return err
//	}
//
//	// Wired as the state manager's read hook.
//	opts := state.Options{OnStateRead: registry.MarkSeen}
//
// # Thread Safety
//
// The Registry is safe for concurrent use.
package device
