package mcpserver

// ContentFormatContract describes how content files are laid out and how
// update operations address them. LLM consumers should read it before
// calling update_document.
const ContentFormatContract = `# Quill Content Format Contract

Every document is one file under the content root. Its id is the file path
relative to the root, with forward slashes (e.g. ` + "`" + `posts/hello.md` + "`" + `).

## File formats

| Extension                   | Record lives in                              |
|-----------------------------|----------------------------------------------|
| .md, .markdown, .mdx        | YAML front matter (` + "`" + `---` + "`" + `) or TOML front matter (` + "`" + `+++` + "`" + `) |
| .yaml, .yml                 | the whole file (a mapping)                   |
| .json                       | the whole file (an object)                   |
| .toml                       | the whole file (a table)                     |

Files under the assets directory are assets, not documents.

## Records

1. **` + "`" + `type` + "`" + ` is required.** It names the model the record follows. Records
   without a registered model are ignored.
2. **` + "`" + `id` + "`" + ` is reserved.** It is never treated as a field.
3. Fields not declared by the model are kept in the file but not exposed.
4. Empty values (` + "`" + `""` + "`" + `, ` + "`" + `0` + "`" + `, ` + "`" + `false` + "`" + `, null) are treated as absent.
5. **References** hold the id of another document (e.g. ` + "`" + `author: people/ann.md` + "`" + `).
6. **Images** hold the public URL of an asset (e.g. ` + "`" + `cover: /assets/cat.png` + "`" + `).
7. **Nested models** are mappings. They carry their own ` + "`" + `type` + "`" + ` unless the
   field allows exactly one model.

## Update operations

` + "`" + `update_document` + "`" + ` takes a list of operations applied in order:

` + "```" + `json
[
  {"opType": "set",     "fieldPath": "title",            "field": {"type": "string", "value": "New title"}},
  {"opType": "unset",   "fieldPath": "seo.description"},
  {"opType": "insert",  "fieldPath": "tags", "index": 0, "item":  {"type": "string", "value": "go"}},
  {"opType": "remove",  "fieldPath": "tags", "index": 2},
  {"opType": "reorder", "fieldPath": "blocks", "order": [2, 0, 1]}
]
` + "```" + `

- ` + "`" + `fieldPath` + "`" + ` is a dotted path with bracket or numeric indexes:
  ` + "`" + `sections[1].title` + "`" + ` and ` + "`" + `sections.1.title` + "`" + ` are the same location.
- ` + "`" + `insert` + "`" + ` without an index appends.
- ` + "`" + `order[i]` + "`" + ` is the old position of the element that ends up at position i.
- Field payloads use the same shape read_document returns:
  ` + "`" + `{"type": "reference", "refType": "document", "refId": "people/ann.md"}` + "`" + `,
  ` + "`" + `{"type": "model", "modelName": "hero", "fields": {...}}` + "`" + `,
  ` + "`" + `{"type": "list", "items": [...]}` + "`" + `.
- Pass the document's ` + "`" + `checksum` + "`" + ` as ` + "`" + `if_match` + "`" + ` to reject the update when the
  file changed since it was read.

## Example

` + "```" + `markdown
---
type: post
title: Weekly standup 2025-01-20
author: people/ann.md
cover: /assets/standup.jpg
tags:
  - meeting-notes
blocks:
  - type: hero
    heading: Welcome
  - type: quote
    text: Ship it.
---

Body text in standard Markdown.
` + "```" + `
`
