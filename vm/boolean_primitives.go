package vm

// ---------------------------------------------------------------------------
// Boolean Primitives
// ---------------------------------------------------------------------------

func (b *builtins) registerBooleanPrimitives() {
	c := b.boolean
	c.primitive = func(v Value) bool { return v.kind == KindBoolean }
	c.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		return Bool(ToBoolean(arg(args, 0))), nil
	}
	c.call = c.factory

	c.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		if this.kind != KindBoolean {
			return Undefined, typeErrorf("Boolean method called on %s", vm.describe(this))
		}
		return String(primitiveToString(this)), nil
	})

	c.addMethod("valueOf", func(vm *VM, this Value, args []Value) (Value, error) {
		if this.kind != KindBoolean {
			return Undefined, typeErrorf("Boolean method called on %s", vm.describe(this))
		}
		return this, nil
	})
}
