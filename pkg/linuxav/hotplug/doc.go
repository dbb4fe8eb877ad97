// Package hotplug watches kernel uevents for camera nodes appearing and
// disappearing.
//
// On Linux a Monitor listens on a NETLINK_KOBJECT_UEVENT socket without cgo.
// ParseUEvent works on every platform so recorded events can be replayed in
// tests.
package hotplug
