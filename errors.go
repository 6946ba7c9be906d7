package blair

import "errors"

var (
	// ErrFrameTooShort is returned by ParseFrame for buffers shorter than an Ethernet
	// header, or shorter than a tagged header when the frame claims a tag.
	ErrFrameTooShort = errors.New("frame too short")
	ErrInvalidVlan   = errors.New("invalid vlan")
	ErrPortNotFound  = errors.New("port not found")
	ErrPortExists    = errors.New("port already exists")
	ErrPortDown      = errors.New("port is down")
	ErrNotTrunk      = errors.New("port is not in trunk mode")
	ErrNotAccess     = errors.New("port is not in access mode")
	ErrTransport     = errors.New("transport error")
	ErrConfig        = errors.New("invalid configuration")
)
