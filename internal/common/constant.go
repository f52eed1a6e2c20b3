package common

// AddressLength is the length, in characters, of a document address
// (the base32-encoded public-key digest). Recipient ids of a different
// length are dropped during parsing.
const AddressLength = 43
