package mcpserver

// ContentFormatContract describes how a markdown file in the content root
// becomes a document in the tree. LLM consumers read it to know which
// front matter keys matter.
const ContentFormatContract = `# Knowledge Base Content Format

Every directory under the content root becomes a directory node in the
sidebar tree. Every file with a recognized extension (.md and .markdown by
default) becomes a document. Entries whose name starts with a dot are ignored.

## Front matter

An optional block at the very top of the file, fenced by ` + "`---`" + ` lines (YAML)
or ` + "`+++`" + ` lines (TOML):

` + "```" + `markdown
---
title: Getting started     # optional, wins over every other title source
tags: [setup, basics]      # optional list or comma-separated string
custom_id: getting-started # optional, stable reference; must be unique
---
` + "```" + `

Only ` + "`title`" + `, ` + "`tags`" + `, ` + "`custom_id`" + ` and its alias ` + "`slug`" + ` are read. Other keys are
ignored. A block that is never closed or cannot be decoded is reported as a
warning and the document is still indexed.

## Titles

The display title is, in order: the front matter ` + "`title`" + `, the first level-one
heading of the body, the file name without its extension.

## Reading time

Plain-text words of the body (front matter excluded) divided by 200,
rounded up.

## References

Documents are addressed by their system id or by ` + "`custom_id`" + `. Both survive
renames and moves of the file or of any directory above it.
`
