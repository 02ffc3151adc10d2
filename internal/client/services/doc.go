// Package services contains the application services of the shelfsync
// client: the auth session, identity resolution, the reconciler, the local
// library edit API, and persisted sync settings.
//
// Services are constructed once by the composition root (see package cli)
// and passed to their collaborators explicitly.
package services
