// Package convert turns arbitrary decoded payload values into values that
// encoding/json can always marshal.
//
// Precedence, first match wins:
//
//  1. Canonical or json.Marshaler implementations supply their own form,
//     pointer receivers included. A failing or panicking implementation falls through to the rules
//     below.
//  2. Booleans, numbers, strings, json.Number and nil pass through.
//     NaN and infinities become nil.
//  3. []byte and byte arrays become nil. Binary blobs are never forwarded.
//  4. Slices and arrays convert element-wise.
//  5. Maps convert key-wise into map[string]any. Non-string keys use their
//     text form.
//  6. Structs convert into map[string]any over their exported fields,
//     named by their json tags.
//  7. Pointers and interfaces convert what they point to.
//  8. Everything else becomes its text form (String() or fmt).
//
// Nesting deeper than MaxDepth is cut off and replaced by the type name, as
// is everything after the first MaxNodes values. A map, slice or pointer
// that contains itself becomes nil at the point where it repeats.
package convert
