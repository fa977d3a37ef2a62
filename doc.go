// Package mnemon is a bounded conversational memory manager. It keeps
// what an assistant knows about one subject inside hard size limits:
// labeled knowledge blocks with per-block character budgets, an
// append-only turn log that folds its older half into summaries when it
// grows past a threshold, a bounded archive of those summaries, and an
// inactivity-driven session lifecycle.
//
// The Manager is the single entry point. It owns every store for one
// subject and runs every operation synchronously to completion:
//
//	mgr, err := mnemon.New("alice",
//	    mnemon.WithConfigFile("mnemon.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	mgr.AppendTurn(ctx, turn.RoleSubject, "remember that the demo is Friday", "chat")
//	payload := mgr.Context()
//
// In-memory state is authoritative. Snapshots are written to an
// optional key-value backend (Redis or etcd) after every mutation, but
// a backend failure only degrades durability: it is logged and the
// session continues in memory.
//
// Subsystems live in their own packages: block, turn, compact, archive,
// session, assemble, learn, event, persist, and config. Each is usable
// on its own; the Manager wires them together.
package mnemon
