/*
Fixed MAPping of anonymous memory

The fmap package hands out a byte addressed Region backed by an anonymous
private memory mapping. The bytes live outside of the Go heap: the
collector neither scans nor moves them, and the region costs one
allocation regardless of how many records are stored in it.

A region can be resized. Resizing maps a new region, copies the old
contents over and unmaps the old one, so every slice handed out before
the resize would dangle. To make that safe outstanding slices are
tracked: Get pins, Release unpins, Do does both around a callback, and
Resize refuses to run while anything is pinned.
*/
package fmap
