// Package page models the identity of a cached page (command, platform,
// language) and splits page markup into classified lines. Platform is a closed
// set of tags with an explicit table; Language is a tldr-style locale tag
// (base code plus optional region, e.g. pt_BR). Resolution order between
// platforms and languages lives in the resolver package, which builds on the
// fallback tables exposed here.
package page
