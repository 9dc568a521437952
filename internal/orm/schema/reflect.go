package schema

import (
	"fmt"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// ClassOf describes a Go struct type as a Class and defines it, along with
// every struct type it references, in l. An embedded struct in first position
// names the superclass. Fields tagged `orm:"-"` are transient.
func ClassOf(l *Loader, t reflect.Type) (*Class, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("invalid model type: %s", t.Kind())
	}
	return classOf(l, t)
}

func className(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

func classOf(l *Loader, t reflect.Type) (*Class, error) {
	name := className(t)
	if c, ok := l.Load(name); ok {
		return c, nil
	}

	c := &Class{Name: name, Kind: TypeObject}
	// define first so self references terminate
	l.Define(c)

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if i == 0 && sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			sup, err := classOf(l, sf.Type)
			if err != nil {
				return nil, err
			}
			c.Super = sup
			continue
		}
		if !sf.IsExported() {
			continue
		}

		m := Member{Name: sf.Name, Transient: sf.Tag.Get("orm") == "-"}
		typ, err := memberClass(l, sf.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", name, sf.Name, err)
		}
		m.Type = typ

		switch ft := deref(sf.Type); ft.Kind() {
		case reflect.Slice, reflect.Array:
			if m.Elem, err = memberClass(l, ft.Elem()); err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", name, sf.Name, err)
			}
		case reflect.Map:
			if m.Key, err = memberClass(l, ft.Key()); err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", name, sf.Name, err)
			}
			if m.Elem, err = memberClass(l, ft.Elem()); err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", name, sf.Name, err)
			}
		}
		c.Members = append(c.Members, m)
	}

	return c, nil
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func memberClass(l *Loader, t reflect.Type) (*Class, error) {
	t = deref(t)
	if t == timeType {
		return DateClass, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return BoolClass, nil
	case reflect.Int8, reflect.Uint8:
		return ByteClass, nil
	case reflect.Int16, reflect.Uint16:
		return ShortClass, nil
	case reflect.Int, reflect.Int32, reflect.Uint32:
		return IntClass, nil
	case reflect.Int64, reflect.Uint, reflect.Uint64:
		return LongClass, nil
	case reflect.Float32:
		return FloatClass, nil
	case reflect.Float64:
		return DoubleClass, nil
	case reflect.String:
		return StringClass, nil
	case reflect.Slice:
		return ListClass, nil
	case reflect.Array:
		elem, err := memberClass(l, t.Elem())
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case reflect.Map:
		return MapClass, nil
	case reflect.Interface:
		return ObjectClass, nil
	case reflect.Struct:
		return classOf(l, t)
	default:
		return nil, fmt.Errorf("unsupported kind %s", t.Kind())
	}
}
