// crypto package provides cryptographic functions for the e-invoice gateway.
//
// these are low level functions - for standard usage (IRN generation, document signing,
// webhook verification) you will not need to call these functions directly.
// See the irn, signing and webhook packages for high level functions.
package crypto
