// Package model defines the shared ledger data model.
//
// Types here carry no storage or business logic beyond small predicates.
// Persistence lives in store-backed packages (sequence, ledger, holdings,
// records); the reconciliation fold lives in package reconcile.
package model
