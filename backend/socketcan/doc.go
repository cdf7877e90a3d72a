// Package socketcan drives Linux SocketCAN interfaces. On other systems the
// package is empty and the backend is not registered.
package socketcan
