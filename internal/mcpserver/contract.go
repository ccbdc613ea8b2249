package mcpserver

// ValueFormatContract describes how bit data values are encoded per property
// type. LLM consumers should read it before calling add_bit.
const ValueFormatContract = `# bitkeep Value Format Contract

A bit is an instance of a bit type. Its data is a JSON object mapping
property ids of that type to values. Call ` + "`list_bit_types`" + ` first: only
property ids defined on the type are accepted, and every property marked
` + "`required`" + ` must be present and non-empty.

## Values by property type

| type        | JSON value                                   | example                      |
|-------------|----------------------------------------------|------------------------------|
| text        | string                                       | "Buy oat milk"               |
| phone       | string                                       | "+44 20 7946 0958"           |
| url         | absolute URL string                          | "https://go.dev"             |
| email       | email address string                         | "ada@example.com"            |
| date        | "YYYY-MM-DD" or RFC 3339 string              | "2025-03-14"                 |
| number      | number                                       | 42.5                         |
| checkbox    | boolean                                      | true                         |
| select      | one of the property's options                | "high"                       |
| multiselect | list of the property's options               | ["work", "urgent"]           |
| rating      | number within [min, max] of options          | 4                            |
| slider      | number within [min, max] of options          | 0.75                         |
| file        | attachment URL string                        | "/api/attachments/lease.pdf" |
| image       | attachment URL string                        | "/api/attachments/cover.png" |

For rating and slider, the property's options are ` + "`[min, max, step]`" + `.
For select and multiselect, the options are the allowed strings; an empty
option list allows any string.

## Rules

1. Unknown property ids are rejected.
2. A property may appear at most once.
3. Omitted optional properties simply have no value; do not send null.
4. Files and images are uploaded first (POST /api/attachments) and referenced by
   the URL the upload returns.

## Example

` + "```" + `json
{
  "type_id": "task",
  "data": {
    "title": "Renew passport",
    "due": "2025-06-01",
    "priority": "high",
    "done": false
  }
}
` + "```" + `
`
