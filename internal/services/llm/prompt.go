package llm

// OutlinePrompt asks the model to read the attached paper and return its
// structure as JSON.
const OutlinePrompt = `You are a research engineer who turns academic papers into runnable tutorials.
Read the attached paper and describe its structure.

Respond with JSON only, using this shape:
{"title": "<paper title>",
 "summary": "<three to five sentence plain-language summary>",
 "sections": [{"heading": "<section heading>", "summary": "<what this part of the tutorial will show>"}],
 "dependencies": ["<python package>", "..."]}

Use between four and ten sections. Order them the way a reader should work through the method:
background, data, model, training or algorithm, evaluation, discussion.
List only packages installable with pip.`

// ImplementationPrompt asks the model to write the notebook cells for an
// outline produced by OutlinePrompt.
const ImplementationPrompt = `You are a research engineer writing a Jupyter notebook that reproduces the core
method of the attached paper at toy scale.

You receive the agreed outline as JSON. Write the notebook cells that implement it.
Rules:
- Every outline section gets one markdown cell (starting with "## " and the heading) followed by one or more code cells.
- Code must be Python 3, self-contained, and runnable top to bottom on a laptop CPU in a few minutes.
- Use synthetic data when the paper's dataset is large or unavailable, and say so in markdown.
- Do not include a title cell; it is added separately.

Respond with JSON only, using this shape:
{"cells": [{"cell_type": "markdown" | "code", "source": "<cell text>"}]}`
