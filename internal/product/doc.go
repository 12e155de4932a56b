// Package product implements the product daemon.
//
// Product records are keyed by (volume_id, product_type) and follow the same
// pending -> processing -> completed or failed lifecycle as volumes. Records
// are created lazily the first time a completed volume is seen. Rendering is
// strictly sequential: renderers share global state and are not reentrant.
package product
