package rpc

// Shim is the in-interpreter initialization fragment of spec §4.7's final
// bullet: it installs `tools`, `skills`, `artifacts`, and `deps` tables
// whose methods funnel through a single host-provided primitive,
// `__codemode_rpc(method, params)`.
//
// gopher-lua carries no JSON library, so rather than hand-roll one in Lua
// (the Python original's equivalent shim can lean on a stdlib `json`
// module), the JSON request/response framing of spec §4.7 is done
// natively in Go: the subprocess kernel registers `__codemode_rpc` as a
// lua.LGFunction that marshals the Lua params table to a Request, writes
// it as a line on its own stdout (the host reads the child's stdout as
// its "input channel" per §4.7), blocks for the matching line on stdin,
// and unmarshals the Response back into a Lua value or a raised error
// table carrying namespace/operation/message/type. This shim only wires
// the Lua-side surface; it never ships to the in-process backend, which
// wires the same four namespaces directly as Go closures instead.
const Shim = `
local function rpc_call(method, params)
  local result, err = __codemode_rpc(method, params or {})
  if err ~= nil then
    error(err)
  end
  return result
end

tools = {}
function tools.list() return rpc_call("tools.list", {}) end
function tools.search(q, limit) return rpc_call("tools.search", {query = q, limit = limit}) end
function tools.call(name, args) return rpc_call("tools.call", {name = name, args = args}) end
function tools.list_recipes(name) return rpc_call("tools.list_recipes", {name = name}) end

skills = {}
function skills.list() return rpc_call("skills.list", {}) end
function skills.search(q, limit) return rpc_call("skills.search", {query = q, limit = limit}) end
function skills.get(name) return rpc_call("skills.get", {name = name}) end
function skills.create(name, source, description) return rpc_call("skills.create", {name = name, source = source, description = description}) end
function skills.delete(name) return rpc_call("skills.delete", {name = name}) end
function skills.invoke(name, args) return rpc_call("skills.invoke", {name = name, args = args}) end

artifacts = {}
function artifacts.list() return rpc_call("artifacts.list", {}) end
function artifacts.load(name) return rpc_call("artifacts.load", {name = name}) end
function artifacts.save(name, data, description, metadata) return rpc_call("artifacts.save", {name = name, data = data, description = description, metadata = metadata}) end
function artifacts.delete(name) return rpc_call("artifacts.delete", {name = name}) end
function artifacts.exists(name) return rpc_call("artifacts.exists", {name = name}) end

deps = {}
function deps.list() return rpc_call("deps.list", {}) end
function deps.add(pkg) return rpc_call("deps.add", {pkg = pkg}) end
function deps.remove(pkg) return rpc_call("deps.remove", {pkg = pkg}) end
`
